package coordinator

import jsoniter "github.com/json-iterator/go"

// RawItem is a data of item which isn't unmarshalled yet.
type RawItem struct {
	Key   string
	Value []byte
}

func (r RawItem) Unmarshal(value interface{}) error {
	// assuming that the value is a struct pointer
	return jsoniter.Unmarshal(r.Value, value)
}
