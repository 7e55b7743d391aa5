// Package models contains domain types for the freshness monitor.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Channel identifies one sensor measurement stream of the device.
type Channel int

const (
	ChannelTemperature Channel = iota
	ChannelHumidity
	ChannelGasGeneral
	ChannelGasAlcohol
	ChannelGasAmmonia
)

// NumChannels is the size of the fixed channel set.
const NumChannels = 5

var channelNames = [NumChannels]string{
	"temperature",
	"humidity",
	"gas_general",
	"gas_alcohol",
	"gas_ammonia",
}

// Channels lists every channel in enumeration order.
var Channels = [NumChannels]Channel{
	ChannelTemperature,
	ChannelHumidity,
	ChannelGasGeneral,
	ChannelGasAlcohol,
	ChannelGasAmmonia,
}

// ParseChannel returns the channel with the given name.
func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel: %q", name)
}

// Valid reports whether c is one of the enumerated channels.
func (c Channel) Valid() bool {
	return c >= 0 && int(c) < NumChannels
}

func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return channelNames[c]
}

// MarshalText encodes the channel as its name (used for JSON values and map keys).
func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid channel: %d", int(c))
	}
	return []byte(channelNames[c]), nil
}

// UnmarshalText decodes a channel name.
func (c *Channel) UnmarshalText(text []byte) error {
	parsed, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Channel) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(c.String())
}

func (c *Channel) DecodeMsgpack(dec *msgpack.Decoder) error {
	name, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return c.UnmarshalText([]byte(name))
}

// ChannelValues holds one value per channel, indexed by Channel.
// It is encoded as an object keyed by channel name.
type ChannelValues [NumChannels]float64

// Get returns the value of channel c.
func (v ChannelValues) Get(c Channel) float64 {
	return v[c]
}

// Reading converts validated values back into a raw reading.
func (v ChannelValues) Reading() Reading {
	r := make(Reading, NumChannels)
	for _, c := range Channels {
		r[c] = v[c]
	}
	return r
}

func (v ChannelValues) asMap() map[string]float64 {
	m := make(map[string]float64, NumChannels)
	for _, c := range Channels {
		m[c.String()] = v[c]
	}
	return m
}

func (v *ChannelValues) fromMap(m map[string]float64) error {
	for name, val := range m {
		c, err := ParseChannel(name)
		if err != nil {
			return err
		}
		v[c] = val
	}
	return nil
}

func (v ChannelValues) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.asMap())
}

func (v *ChannelValues) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	return v.fromMap(m)
}

func (v ChannelValues) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(v.asMap())
}

func (v *ChannelValues) DecodeMsgpack(dec *msgpack.Decoder) error {
	var m map[string]float64
	if err := dec.Decode(&m); err != nil {
		return err
	}
	return v.fromMap(m)
}
