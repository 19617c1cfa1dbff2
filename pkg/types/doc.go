// Package types defines the task record, the field preservation policy,
// configuration, and the error taxonomy shared by the taskpad store, its
// durability layer, and the CLI and HTTP surfaces.
package types
