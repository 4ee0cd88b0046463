package server

// Version of the cipherrelay server and client.
// This variable can be overridden at build time using:
//
//	go build -ldflags "-X github.com/cipherrelay/cipherrelay/server.Version=v1.0.0"
var Version = "dev"
