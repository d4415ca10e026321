// Package settings is the device's persistent key/value store.
//
// Values are grouped by namespace and survive restarts and config file
// replacement. The broker URL lives here under KeyBrokerURL; startup treats
// its absence as fatal because the device has nowhere to send anything.
//
// The store is backed by SQLite through package database. Keys are limited
// to 15 characters so provisioned values stay interchangeable with devices
// that keep settings in flash.
package settings
