// Package limits provides centralized size constants and validation functions
// for everything the runtime forwards to the native engine.
//
// # Limits
//
//   - MaxRoomName (128 bytes): room names are the registry's primary key and
//     part of every room token.
//   - MaxUserData (4096 bytes): opaque per-peer user data sent on join and on
//     every update.
//   - MaxMessage (16384 bytes): arbitrary room message payloads.
//   - MaxMessageRecipients (1024): explicit recipient lists of one message.
//   - MaxProcessingBuffer (1MB): the absolute maximum for any payload copied
//     out of a native event.
//
// # Validation Functions
//
//	if err := limits.ValidateMessage(data, peerIDs); err != nil {
//	    // ErrEmpty or ErrTooLarge, wrapped with context
//	}
//
// For custom size limits, use the generic ValidateSize function:
//
//	err := limits.ValidateSize(data, 512)
package limits
