package auth

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPKey produces a fresh shared secret for the given account,
// wrapped in a key that carries the otpauth:// provisioning URI.
func GenerateTOTPKey(issuer, accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
}

// VerifyTOTPCode checks a submitted code against the stored secret using
// the library's default clock-skew tolerance. A missing or malformed
// secret is reported as an invalid code, never an error.
func VerifyTOTPCode(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	return totp.Validate(code, secret)
}

// QRCodePNG renders the enrollment QR for key as a base64 PNG data URL,
// ready to drop into an <img src=...>.
func QRCodePNG(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
