package models

// ChannelProfile is the static configuration of one channel: its nominal
// acceptable range and how it is displayed.
type ChannelProfile struct {
	Name string  `json:"name" yaml:"name"`
	Unit string  `json:"unit" yaml:"unit"`
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
}

// DefaultThreshold returns the profile's nominal range as a non-adaptive threshold.
func (p ChannelProfile) DefaultThreshold() Threshold {
	return Threshold{Min: p.Min, Max: p.Max}
}

// ChannelProfiles holds one profile per channel, indexed by Channel.
type ChannelProfiles [NumChannels]ChannelProfile

// DefaultProfiles returns the reference ranges used by the device firmware.
func DefaultProfiles() ChannelProfiles {
	return ChannelProfiles{
		ChannelTemperature: {Name: "Temperature", Unit: "°C", Min: 20, Max: 35},
		ChannelHumidity:    {Name: "Humidity", Unit: "%", Min: 40, Max: 85},
		ChannelGasGeneral:  {Name: "General gas (MQ2)", Unit: "ppm", Min: 0, Max: 300},
		ChannelGasAlcohol:  {Name: "Alcohol (MQ3)", Unit: "ppm", Min: 0, Max: 300},
		ChannelGasAmmonia:  {Name: "Ammonia (MQ135)", Unit: "ppm", Min: 0, Max: 300},
	}
}
