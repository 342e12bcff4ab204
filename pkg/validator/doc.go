// Package validator provides small declarative validation rules for the
// input that enters the push service: registration credentials and
// notification requests.
//
// Every rule is a Rule value pairing a Check function with the error metadata
// reported when the check fails. Rules are evaluated with Apply, which
// collects all failures into a ValidationErrors slice implementing error, so a
// caller gets every field problem in one return.
//
// # Usage
//
//	err := validator.Apply(
//	    validator.RequiredString("title", req.Title),
//	    validator.ValidURLWithScheme("endpoint", cred.Endpoint, []string{"https"}),
//	    validator.Base64KeyLen("p256dh", cred.P256dh, 65),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    for _, field := range verrs.Fields() {
//	        // report verrs.Get(field)
//	    }
//	}
//
// The package holds no global state and is safe for concurrent use.
package validator
