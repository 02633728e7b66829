// Package prefs provides the persistent key-value preferences store.
//
// The original controller kept network credentials and enabled flags in
// ESP32 NVS flash via the Preferences API. This package provides the same
// synchronous getString/putString/getBool/putBool/getUint16/putUint16/remove
// surface on top of a single-table SQLite database.
//
// Fixed key names used by the connection managers:
//
//	wifi_ssid, wifi_password, wifi_enabled
//	mqtt_broker, mqtt_port, mqtt_username, mqtt_password, mqtt_enabled
//
// Reads return a caller-supplied default when the key is absent; writes
// complete before the call returns. The store file is created with
// owner-only permissions since it holds credentials in plain text
// (credential encryption is explicitly out of scope).
package prefs
