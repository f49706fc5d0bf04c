// Package config holds the settings the runtime copies into each room at
// join time: gateway, access key, client id, audio formats, event toggles,
// APM settings and playback buffer sizes.
//
// Values come from Default, an optional YAML file (Load), dotenv files and
// ODIN_* environment variables (ApplyEnv). Access keys can be generated
// locally and kept in the OS keychain.
package config
