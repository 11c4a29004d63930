// Minimal MAVLink v1/v2 codec for the link tool.
// Only what the sender needs: HEARTBEAT to watch link health and RFD_TEST status message.
//
// Frame v1: magic(0xfe) len seq sysid compid msgid(1) payload crc(2)
// Frame v2: magic(0xfd) len incompat compat seq sysid compid msgid(3) payload crc(2) [signature(13)]
// CRC is X.25 over everything after magic plus per-message CRC_EXTRA byte.
package mavlink
