package config

import "time"

type DocumentsConfig interface {
	GetCDAMURL() string
	GetCaseDataURL() string
	GetCaseTypeID() string
	GetJurisdictionID() string
	GetClassification() string
	GetMaxUploadBytes() int64
	GetDownstreamTimeout() time.Duration
}

type Documents struct {
	CDAMURL           string        `env:"CDAM_URL" envDefault:"http://localhost:4455"`
	CaseDataURL       string        `env:"CCD_DATA_STORE_URL" envDefault:"http://localhost:4452"`
	CaseTypeID        string        `env:"CASE_TYPE_ID" envDefault:"PCS"`
	JurisdictionID    string        `env:"JURISDICTION_ID" envDefault:"PCS"`
	Classification    string        `env:"DOCUMENT_CLASSIFICATION" envDefault:"PUBLIC"`
	MaxUploadBytes    int64         `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"` // 10 MiB
	DownstreamTimeout time.Duration `env:"DOWNSTREAM_TIMEOUT" envDefault:"30s"`
}

func (d Documents) GetCDAMURL() string {
	return d.CDAMURL
}

func (d Documents) GetCaseDataURL() string {
	return d.CaseDataURL
}

func (d Documents) GetCaseTypeID() string {
	return d.CaseTypeID
}

func (d Documents) GetJurisdictionID() string {
	return d.JurisdictionID
}

func (d Documents) GetClassification() string {
	return d.Classification
}

func (d Documents) GetMaxUploadBytes() int64 {
	return d.MaxUploadBytes
}

func (d Documents) GetDownstreamTimeout() time.Duration {
	return d.DownstreamTimeout
}
