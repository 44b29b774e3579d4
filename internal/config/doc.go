// Package config resolves environment-driven server configuration.
package config
