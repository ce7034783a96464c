// Package config loads the service configuration from YAML.
//
// The document is expanded with secret.ExpandEnvStrict before decoding, so
// every ${VAR} must be set. Unknown keys are rejected. Credentials may be
// written as secretref:<provider>:<ref> and are resolved through the
// providers declared under secrets.
package config
