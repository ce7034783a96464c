// Package secret resolves credentials referenced from configuration.
//
// Values are expanded with ExpandEnvStrict first. A value that then reads
// "secretref:<provider>:<ref>" (or embeds such a reference) is resolved by
// the named Provider. FileProvider reads mounted secret files, which is how
// Redis passwords and token secrets usually reach a pod.
package secret
