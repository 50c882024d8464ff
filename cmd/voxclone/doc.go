// Package main hosts the voxclone CLI entrypoint and command graph.
//
// The Cobra-based command tree turns terminal invocations into pipeline runs,
// environment checks, workspace resets, run history queries and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands only describe their own behaviour.
//
// Keep this package lean: add functionality to the internal packages first,
// then surface it through a command or flag here.
package main
