package transfer

import "time"

// Binary message types on the shared data channel.
const (
	MessageTypeFileMetadata = "file_metadata"
	MessageTypeChunk        = "chunk"
)

const (
	MinChunkSize     = 4 * 1024  // very slow links
	DefaultChunkSize = 16 * 1024 // starting size
	// Stays under the 64 KiB SCTP message limit once framed.
	MaxChunkSize = 60 * 1024

	HighWaterMark = 2 * 1024 * 1024 // pause sending above this
	LowWaterMark  = 512 * 1024      // resume below this

	SendTimeout  = 60 * time.Second
	DrainTimeout = 30 * time.Second
)

// Link speeds, in bytes per second, at which the chunk size steps up.
const (
	SpeedVerySlowThreshold = 50 * 1024
	SpeedSlowThreshold     = 200 * 1024
	SpeedMediumThreshold   = 500 * 1024
	SpeedFastThreshold     = 1024 * 1024
)
