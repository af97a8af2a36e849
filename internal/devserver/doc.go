// Package devserver is a small chat server speaking the roomchat event
// protocol, for running and testing the client locally.
//
// The package implements:
//   - Hub: tracks connected clients and which room each has joined
//   - Handler: upgrades connections and routes joinRoom, sendMessage,
//     typing and notTyping events
//   - Service: owns the hub and handler for the lifetime of the server
//
// Room messages are appended to a MessageStore and the newest of them are
// replayed as history-message when a client joins. Private messages go only
// to the named user and back to the sender, and are not stored.
package devserver
