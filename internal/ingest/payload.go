// Package ingest turns device messages into readings and feeds them to the
// monitor from MQTT and AMQP.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/freshness-monitor/backend/internal/models"
)

// ErrInvalidPayload is returned for messages that are not a JSON object.
var ErrInvalidPayload = errors.New("invalid payload")

// Processor evaluates one reading. *monitor.Service satisfies it.
type Processor interface {
	Process(ctx context.Context, reading models.Reading) (*models.Result, error)
}

// channelKeys lists the accepted field names of each channel, in priority
// order: the device firmware's names first.
var channelKeys = [models.NumChannels][]string{
	models.ChannelTemperature: {"suhu", "temperature"},
	models.ChannelHumidity:    {"kelembapan", "humidity"},
	models.ChannelGasGeneral:  {"mq2", "gas_general", "gas"},
	models.ChannelGasAlcohol:  {"mq3", "gas_alcohol"},
	models.ChannelGasAmmonia:  {"mq135", "gas_ammonia"},
}

// Decode parses a device payload. A field present with a null value counts
// as present; unknown fields are ignored. Missing channels are left out of
// the reading for the engine to reject.
func Decode(data []byte) (models.Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	reading := make(models.Reading, models.NumChannels)
	for _, c := range models.Channels {
		for _, key := range channelKeys[c] {
			if v, ok := fields[key]; ok {
				reading[c] = v
				break
			}
		}
	}
	return reading, nil
}
