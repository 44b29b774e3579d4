// Package common holds helpers shared by the tool packages: argument
// extraction, auth error presentation and handler instrumentation.
package common
