// Package config loads process configuration: a YAML runtime file
// (model, limits, checkpoint backend, logging) and an optional HCL team
// file declaring the workers and the supervisor prompt.
package config
