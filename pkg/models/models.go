package models

import "encoding/json"

// ProcessingRequest is the body accepted by POST /process. Image carries the
// base64 payload, optionally wrapped in a browser data URL.
type ProcessingRequest struct {
	Image    string `json:"image"`
	Filename string `json:"filename,omitempty"`
}

// ProcessingResponse is the success body: the processed image and its
// metadata are always returned together.
type ProcessingResponse struct {
	ProcessedImage string   `json:"processedImage"`
	Metadata       Metadata `json:"metadata"`
}

// ErrorResponse is the body returned for any non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Metadata describes a processed image. Width and Height always refer to the
// processed raster. Extra holds transform-declared scalar values; unknown
// keys survive a decode/encode round trip untouched.
type Metadata struct {
	Width            int
	Height           int
	OriginalWidth    int
	OriginalHeight   int
	OriginalFilename string
	Extra            map[string]float64
}

const (
	keyWidth            = "width"
	keyHeight           = "height"
	keyOriginalWidth    = "original_width"
	keyOriginalHeight   = "original_height"
	keyOriginalFilename = "original_filename"
)

// MarshalJSON flattens the documented fields and Extra into one JSON object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Extra)+5)
	for k, v := range m.Extra {
		if !reservedKey(k) {
			out[k] = v
		}
	}
	out[keyWidth] = m.Width
	out[keyHeight] = m.Height
	out[keyOriginalWidth] = m.OriginalWidth
	out[keyOriginalHeight] = m.OriginalHeight
	if m.OriginalFilename != "" {
		out[keyOriginalFilename] = m.OriginalFilename
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the documented fields and routes every other numeric
// key into Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata{}
	for key, value := range raw {
		switch key {
		case keyWidth:
			if err := json.Unmarshal(value, &m.Width); err != nil {
				return err
			}
		case keyHeight:
			if err := json.Unmarshal(value, &m.Height); err != nil {
				return err
			}
		case keyOriginalWidth:
			if err := json.Unmarshal(value, &m.OriginalWidth); err != nil {
				return err
			}
		case keyOriginalHeight:
			if err := json.Unmarshal(value, &m.OriginalHeight); err != nil {
				return err
			}
		case keyOriginalFilename:
			if err := json.Unmarshal(value, &m.OriginalFilename); err != nil {
				return err
			}
		default:
			var scalar float64
			if err := json.Unmarshal(value, &scalar); err != nil {
				// Non-numeric extension fields are tolerated but dropped;
				// the documented contract only promises scalar passthrough.
				continue
			}
			if m.Extra == nil {
				m.Extra = map[string]float64{}
			}
			m.Extra[key] = scalar
		}
	}
	return nil
}

func reservedKey(key string) bool {
	switch key {
	case keyWidth, keyHeight, keyOriginalWidth, keyOriginalHeight, keyOriginalFilename:
		return true
	}
	return false
}
