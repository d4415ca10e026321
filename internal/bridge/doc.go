// Package bridge connects the device to its MQTT namespace.
//
// Every topic the device uses lives under a single base topic derived from
// its hardware address ("GRAYCAM_aabbccddeeff"). Application code only ever
// sees subtopics: the Gate composes full topics on the way out and the
// Mailbox strips the base on the way in.
//
//	transport events ──► Gate.HandleEvent ──► Mailbox ──► application
//	application ──► Gate.Publish ──► Compose ──► transport
//
// The Gate refuses outbound work while disconnected and never blocks; it
// issues each send exactly once and leaves redelivery to the transport.
// The Mailbox is bounded and drops the oldest record when full, so the
// transport callback never waits on a slow consumer.
package bridge
