package apimodel

import "errors"

// MfaUpdateTotpMethodRequest is the body of a TOTP MFA method update.
type MfaUpdateTotpMethodRequest struct {
	Algorithm             Field[string] `json:"algorithm,omitzero"`
	Digits                Field[int64]  `json:"digits,omitzero"`
	Issuer                Field[string] `json:"issuer,omitzero"`
	KeySize               Field[int64]  `json:"key_size,omitzero"`
	MaxValidationAttempts Field[int64]  `json:"max_validation_attempts,omitzero"`
	MethodName            Field[string] `json:"method_name,omitzero"`
	Period                Field[string] `json:"period,omitzero"`
	QrSize                Field[int64]  `json:"qr_size,omitzero"`
	Skew                  Field[int64]  `json:"skew,omitzero"`
}

// MfaUpdateTotpMethodRequestFromWire maps a decoded body onto the typed request.
// Missing keys stay absent; keys with a null value become Null.
func MfaUpdateTotpMethodRequestFromWire(w Wire) (MfaUpdateTotpMethodRequest, error) {
	var (
		r    MfaUpdateTotpMethodRequest
		err  error
		errs []error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	r.Algorithm, err = readField(w, "algorithm", asString)
	collect(err)
	r.Digits, err = readField(w, "digits", asInt64)
	collect(err)
	r.Issuer, err = readField(w, "issuer", asString)
	collect(err)
	r.KeySize, err = readField(w, "key_size", asInt64)
	collect(err)
	r.MaxValidationAttempts, err = readField(w, "max_validation_attempts", asInt64)
	collect(err)
	r.MethodName, err = readField(w, "method_name", asString)
	collect(err)
	r.Period, err = readField(w, "period", asString)
	collect(err)
	r.QrSize, err = readField(w, "qr_size", asInt64)
	collect(err)
	r.Skew, err = readField(w, "skew", asInt64)
	collect(err)

	return r, errors.Join(errs...)
}

// ToWire is the inverse of MfaUpdateTotpMethodRequestFromWire.
func (r MfaUpdateTotpMethodRequest) ToWire() Wire {
	w := Wire{}
	writeField(w, "algorithm", r.Algorithm)
	writeField(w, "digits", r.Digits)
	writeField(w, "issuer", r.Issuer)
	writeField(w, "key_size", r.KeySize)
	writeField(w, "max_validation_attempts", r.MaxValidationAttempts)
	writeField(w, "method_name", r.MethodName)
	writeField(w, "period", r.Period)
	writeField(w, "qr_size", r.QrSize)
	writeField(w, "skew", r.Skew)
	return w
}
