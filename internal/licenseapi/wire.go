package licenseapi

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/KevinTCoughlin/licensegate/internal/license"
)

var validate = validator.New()

type activateRequest struct {
	LicenseKey  string `json:"licenseKey"`
	HardwareID  string `json:"hardwareId"`
	MachineName string `json:"machineName"`
	AppVersion  string `json:"appVersion"`
}

type machineRequest struct {
	LicenseKey string `json:"licenseKey"`
	HardwareID string `json:"hardwareId"`
	AppVersion string `json:"appVersion,omitempty"`
}

type envelope struct {
	Success   bool         `json:"success"`
	Valid     bool         `json:"valid"`
	License   *wireLicense `json:"license,omitempty"`
	ErrorCode string       `json:"errorCode,omitempty"`
	Message   string       `json:"message,omitempty"`
}

type wireLicense struct {
	Tier              string     `json:"tier" validate:"required"`
	Email             string     `json:"email" validate:"omitempty,email"`
	MaxMachines       int        `json:"maxMachines" validate:"gte=0"`
	ActivatedMachines int        `json:"activatedMachines" validate:"gte=0"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	PurchasedAt       *time.Time `json:"purchasedAt,omitempty"`
	Signature         string     `json:"signature,omitempty"`
}

func (e *envelope) snapshot() (*license.Snapshot, error) {
	if e.License == nil {
		return nil, &APIError{Kind: KindDecodingError, Message: "response has no license"}
	}
	w := e.License
	if err := validate.Struct(w); err != nil {
		return nil, &APIError{Kind: KindDecodingError, Message: "invalid license in response", Err: err}
	}
	tier, err := license.ParseTier(w.Tier)
	if err != nil {
		return nil, &APIError{Kind: KindDecodingError, Message: "invalid license in response", Err: err}
	}
	return &license.Snapshot{
		Tier:              tier,
		Email:             w.Email,
		MaxMachines:       w.MaxMachines,
		ActivatedMachines: w.ActivatedMachines,
		ExpiresAt:         w.ExpiresAt,
		PurchasedAt:       w.PurchasedAt,
		Signature:         w.Signature,
	}, nil
}
