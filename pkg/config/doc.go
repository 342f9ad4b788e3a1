/*
Package config loads the kiln binary's yaml configuration.

Library users configure components directly through their Config structs;
this package only backs the CLI, mapping a single yaml file onto those
structs with sensible defaults for anything unset.
*/
package config
