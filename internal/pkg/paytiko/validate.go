package paytiko

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
)

// DateTimeLayout is the gateway's date format for range resyncs.
const DateTimeLayout = "2006-01-02 15:04:05"

var minimumAmount = decimal.RequireFromString("0.01")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ResyncRequest is the operator body for resyncing specific orders. The date
// bounds are accepted for compatibility; the gateway resyncs one order per call.
type ResyncRequest struct {
	OrderIDs  []string `json:"order_ids" validate:"required,min=1,dive,required,notblank"`
	StartDate string   `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02 15:04:05"`
	EndDate   string   `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02 15:04:05"`
}

// DateRangeRequest is the operator body for a range resync.
type DateRangeRequest struct {
	StartDate        string   `json:"start_date" validate:"required,datetime=2006-01-02 15:04:05"`
	EndDate          string   `json:"end_date" validate:"required,datetime=2006-01-02 15:04:05"`
	TransactionTypes []string `json:"transaction_types,omitempty" validate:"omitempty,dive,oneof=SALE REFUND CHARGEBACK VOID"`
}

// ValidatePaymentData checks a charge before anything is sent to the gateway.
func ValidatePaymentData(data PaymentData) error {
	verr := collect(validate.Struct(data))
	switch {
	case data.Amount.IsZero():
		verr.Add("amount", "The amount field is required.")
	case data.Amount.LessThan(minimumAmount):
		verr.Add("amount", "The amount must be at least 0.01.")
	}
	return verr.orNil()
}

func (r ResyncRequest) Validate() error {
	return collect(validate.Struct(r)).orNil()
}

func (r DateRangeRequest) Validate() error {
	verr := collect(validate.Struct(r))
	if _, bad := verr.Fields["start_date"]; !bad {
		if _, bad := verr.Fields["end_date"]; !bad {
			start, _ := time.Parse(DateTimeLayout, r.StartDate)
			end, _ := time.Parse(DateTimeLayout, r.EndDate)
			if !end.After(start) {
				verr.Add("end_date", "The end date must be a date after start date.")
			}
		}
	}
	return verr.orNil()
}

var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// collect turns validator errors into field messages keyed by JSON path,
// e.g. "billing_details.email" or "order_ids.0".
func collect(err error) *ValidationError {
	verr := &ValidationError{}
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("body", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if i := strings.Index(path, "."); i >= 0 {
			path = path[i+1:]
		}
		path = indexPattern.ReplaceAllString(path, ".$1")
		verr.Add(path, fieldMessage(path, fe))
	}
	return verr
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldMessage(path string, fe validator.FieldError) string {
	name := path
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("The %s field is required.", name)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", name)
	case "url":
		return fmt.Sprintf("The %s must be a valid URL.", name)
	case "len":
		return fmt.Sprintf("The %s must be %s characters.", name, fe.Param())
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s.", name, fe.Param())
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", name, fe.Param())
	case "datetime":
		return fmt.Sprintf("The %s does not match the format %s.", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", name)
	}
	return fmt.Sprintf("The %s is invalid.", name)
}
