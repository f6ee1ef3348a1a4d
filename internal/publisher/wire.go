package publisher

import (
	"fmt"

	"github.com/golang/snappy"
)

// Message attribute keys shared by the publisher and the bridge.
const (
	attrEventType = "event_type"
	attrSiteID    = "site_id"
	attrSource    = "source"
	attrEncoding  = "encoding"

	encodingSnappy = "snappy"
)

// EncodingAttribute names the attribute carrying the wire encoding.
func EncodingAttribute() string { return attrEncoding }

// SiteIDAttribute names the attribute carrying the partition key.
func SiteIDAttribute() string { return attrSiteID }

func compress(data []byte) []byte {
	return snappy.Encode(nil, data)
}

// DecodeWire reverses the wire encoding named by the message attribute. An
// absent or empty attribute means the payload is plain JSON.
func DecodeWire(data []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", "none":
		return data, nil
	case encodingSnappy:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unsupported wire encoding %q", encoding)
	}
}
