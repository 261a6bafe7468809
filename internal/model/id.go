package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/juju/errors"
)

// ID is a store-assigned identifier. The relational store issues integer
// keys, the document store object id hex strings.
type ID string

func (id ID) String() string {
	return string(id)
}

// Int64 parses id as an integer surrogate key.
func (id ID) Int64() (int64, error) {
	value, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || value <= 0 {
		return 0, errors.NotValidf("id %q", string(id))
	}
	return value, nil
}

func IDFromInt64(value int64) ID {
	return ID(strconv.FormatInt(value, 10))
}

// MarshalJSON writes integer keys as JSON numbers so that clients of the
// relational store keep receiving numeric ids.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = ID(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return errors.NotValidf("id %s", string(data))
	}
	if _, err := number.Int64(); err != nil {
		return errors.NotValidf("id %s", string(data))
	}
	*id = ID(number.String())
	return nil
}
