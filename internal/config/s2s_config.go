package config

import "time"

type S2SConfig interface {
	GetS2SURL() string
	GetS2SMicroservice() string
	GetS2SSecret() string
	GetS2STTL() time.Duration
	GetS2STimeout() time.Duration
}

type S2S struct {
	URL          string        `env:"S2S_URL"`
	Microservice string        `env:"S2S_MICROSERVICE" envDefault:"pcs_frontend"`
	Secret       string        `env:"S2S_SECRET"`
	TTL          time.Duration `env:"S2S_TTL" envDefault:"1h"`
	Timeout      time.Duration `env:"S2S_TIMEOUT" envDefault:"5s"`
}

func (s S2S) GetS2SURL() string {
	return s.URL
}

func (s S2S) GetS2SMicroservice() string {
	return s.Microservice
}

func (s S2S) GetS2SSecret() string {
	return s.Secret
}

func (s S2S) GetS2STTL() time.Duration {
	return s.TTL
}

func (s S2S) GetS2STimeout() time.Duration {
	return s.Timeout
}
