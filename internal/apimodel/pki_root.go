package apimodel

import "errors"

// PkiGenerateRootResponse is the data block returned when generating a root CA.
type PkiGenerateRootResponse struct {
	Certificate  Field[string] `json:"certificate,omitzero"`
	Expiration   Field[int64]  `json:"expiration,omitzero"`
	IssuerID     Field[string] `json:"issuer_id,omitzero"`
	IssuerName   Field[string] `json:"issuer_name,omitzero"`
	IssuingCA    Field[string] `json:"issuing_ca,omitzero"`
	KeyID        Field[string] `json:"key_id,omitzero"`
	KeyName      Field[string] `json:"key_name,omitzero"`
	PrivateKey   Field[string] `json:"private_key,omitzero"`
	SerialNumber Field[string] `json:"serial_number,omitzero"`
}

func PkiGenerateRootResponseFromWire(w Wire) (PkiGenerateRootResponse, error) {
	var (
		r    PkiGenerateRootResponse
		err  error
		errs []error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	r.Certificate, err = readField(w, "certificate", asString)
	collect(err)
	r.Expiration, err = readField(w, "expiration", asInt64)
	collect(err)
	r.IssuerID, err = readField(w, "issuer_id", asString)
	collect(err)
	r.IssuerName, err = readField(w, "issuer_name", asString)
	collect(err)
	r.IssuingCA, err = readField(w, "issuing_ca", asString)
	collect(err)
	r.KeyID, err = readField(w, "key_id", asString)
	collect(err)
	r.KeyName, err = readField(w, "key_name", asString)
	collect(err)
	r.PrivateKey, err = readField(w, "private_key", asString)
	collect(err)
	r.SerialNumber, err = readField(w, "serial_number", asString)
	collect(err)

	return r, errors.Join(errs...)
}

func (r PkiGenerateRootResponse) ToWire() Wire {
	w := Wire{}
	writeField(w, "certificate", r.Certificate)
	writeField(w, "expiration", r.Expiration)
	writeField(w, "issuer_id", r.IssuerID)
	writeField(w, "issuer_name", r.IssuerName)
	writeField(w, "issuing_ca", r.IssuingCA)
	writeField(w, "key_id", r.KeyID)
	writeField(w, "key_name", r.KeyName)
	writeField(w, "private_key", r.PrivateKey)
	writeField(w, "serial_number", r.SerialNumber)
	return w
}
