package replyaddr

import "fmt"

// Format identifies one wire layout of a reply token.
//
// Tokens already sent in mail can come back long after the layout that
// produced them was retired, so every layout ever issued stays decodable.
// Only FormatStructured and FormatBlob are produced today, plus
// FormatLegacyPrefixedBlob for blobs too short to stand alone.
type Format int

const (
	// FormatBlob is a bare lower-case Crockford string holding
	// digest NUL rcpt NUL mailFrom.
	FormatBlob Format = iota + 1

	// FormatStructured is local<sep>at<sep>domain<sep>digest<sep>rcpt.
	// Tokens from before the "at" infix have the same shape without it.
	FormatStructured

	// FormatLegacyPrefixed is rep=digest=rcpt=local=domain.
	FormatLegacyPrefixed

	// FormatLegacyPrefixedBlob is rep= followed by a blob.
	FormatLegacyPrefixedBlob
)

func (f Format) String() string {
	switch f {
	case FormatBlob:
		return "blob"
	case FormatStructured:
		return "structured"
	case FormatLegacyPrefixed:
		return "legacy_prefixed"
	case FormatLegacyPrefixedBlob:
		return "legacy_prefixed_blob"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

type formatDecoder func(c *Codec, token, secret string) (ReplyInfo, bool)

// replyFormats is tried in order by DecodeReply. New layouts go at the end.
// The digest decides between candidates; the order only decides who is
// asked first.
var replyFormats = []struct {
	format Format
	decode formatDecoder
}{
	{FormatBlob, (*Codec).decodeBareBlob},
	{FormatStructured, (*Codec).decodeStructured},
	{FormatLegacyPrefixed, (*Codec).decodeLegacyPrefixed},
	{FormatLegacyPrefixedBlob, (*Codec).decodeLegacyPrefixedBlob},
}

// Formats lists the decodable formats in the order they are tried.
func Formats() []Format {
	out := make([]Format, len(replyFormats))
	for i, f := range replyFormats {
		out[i] = f.format
	}
	return out
}
