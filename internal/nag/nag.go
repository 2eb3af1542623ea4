// Package nag turns license state into user-facing text.
package nag

import (
	"fmt"

	"github.com/KevinTCoughlin/licensegate/internal/license"
	"github.com/KevinTCoughlin/licensegate/internal/orchestrator"
	"github.com/KevinTCoughlin/licensegate/internal/ui"
)

// PurchaseURL is where reminders send users to buy a license.
const PurchaseURL = "https://licensegate.app/buy"

// StatusLabel returns a human-readable label for the license state.
func StatusLabel(s license.Status) string {
	switch s.State {
	case license.StateLicensed:
		return fmt.Sprintf("Licensed (%s)", s.Tier.DisplayName())
	case license.StateTrial:
		if s.DaysRemaining == 1 {
			return "Trial (1 day remaining)"
		}
		return fmt.Sprintf("Trial (%d days remaining)", s.DaysRemaining)
	case license.StateExpired:
		return "Expired"
	case license.StateInvalid:
		return fmt.Sprintf("Invalid: %s", s.Reason)
	default:
		return "Unknown"
	}
}

// Hint returns the next step for the user, or "" when none is needed.
func Hint(s license.Status) string {
	switch s.State {
	case license.StateTrial, license.StateExpired:
		return "Run 'licensegate activate --key YOUR-KEY' to activate a license."
	case license.StateInvalid:
		switch s.Reason {
		case license.ReasonNotActivatedHere:
			return "This license belongs to another machine. Activate it here with 'licensegate activate --key YOUR-KEY'."
		case license.ReasonValidationRequired:
			return "Connect to the internet and run 'licensegate refresh'."
		case license.ReasonStorageUnavailable:
			return "This build cannot persist license data. Unlock the system keychain or configure the file store."
		}
	}
	return ""
}

// MaybeNag prints a reminder when the user is not fully licensed.
func MaybeNag(output *ui.UI, s license.Status) {
	switch s.State {
	case license.StateLicensed:
		return
	case license.StateTrial:
		if s.DaysRemaining > 1 {
			return
		}
		output.Warn("Your trial ends within a day.")
	case license.StateExpired:
		output.Warn("Your trial has ended.")
	case license.StateInvalid:
		output.Warn("License invalid: %s.", s.Reason)
		if hint := Hint(s); hint != "" {
			output.Info("%s", hint)
		}
		return
	}
	output.Info("Buy a license at: %s", PurchaseURL)
	output.Info("Use 'licensegate activate --key YOUR-KEY' to remove this message.")
}

// ActivationMessage explains an activation result to the user.
func ActivationMessage(res orchestrator.ActivationResult) string {
	switch res.Outcome {
	case orchestrator.OutcomeActivated:
		return fmt.Sprintf("License activated: %s.", res.Tier.DisplayName())
	case orchestrator.OutcomeAlreadyActivated:
		return fmt.Sprintf("This machine was already activated (%s). License restored.", res.Tier.DisplayName())
	}

	switch res.Reason {
	case orchestrator.ReasonMalformedKey:
		return "That does not look like a license key. Keys look like SOLO-XXXXX-XXXXX-XXXXX."
	case orchestrator.ReasonMissingCapability:
		return "This build cannot persist license data because secure storage is unavailable."
	case orchestrator.ReasonNetwork:
		return "Could not reach the license server. Check your internet connection and try again."
	case orchestrator.ReasonInvalidKey:
		return "The license server rejected this key."
	case orchestrator.ReasonLicenseNotFound:
		return "No license exists for this key."
	case orchestrator.ReasonMachineAlreadyActivated:
		if res.CanReactivate {
			return "This key is already active on this machine but could not be restored. Deactivate and activate again to reuse the slot."
		}
		return "This key is already active on this machine and its reactivation allowance is used up. Contact support."
	case orchestrator.ReasonMachineLimitReached:
		return "This license is active on the maximum number of machines. Deactivate one first."
	case orchestrator.ReasonLicenseRevoked:
		return "This license has been revoked."
	case orchestrator.ReasonRateLimited:
		return "Too many activation attempts. Wait a moment and try again."
	case orchestrator.ReasonStorage:
		return "The license was activated but could not be saved on this machine."
	case orchestrator.ReasonDecoding:
		return "The license server sent a response this version cannot read. Try updating."
	default:
		return "The license server reported an error. Try again later."
	}
}
