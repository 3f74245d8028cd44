package handler

import (
    "errors"
    "fmt"
    "net/http"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/library-loans/internal/utils"
)

// Validator adapts go-playground/validator to echo.  Field names in messages
// are the JSON names clients send.
type Validator struct {
    v *validator.Validate
}

// NewValidator returns a Validator reporting JSON field names.
func NewValidator() *Validator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    // bcrypt only looks at the first 72 bytes and refuses longer input
    _ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
        return len(fl.Field().String()) <= utils.MaxPasswordBytes
    })
    return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error {
    err := cv.v.Struct(i)
    if err == nil {
        return nil
    }
    var verrs validator.ValidationErrors
    if !errors.As(err, &verrs) {
        return err
    }
    msgs := make([]string, 0, len(verrs))
    for _, fe := range verrs {
        msgs = append(msgs, fieldMessage(fe))
    }
    return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return fmt.Sprintf("%s is required", fe.Field())
    case "gt":
        return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
    case "gte", "min":
        return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
    case "max", "lte":
        return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
    case "pwbytes":
        return fmt.Sprintf("%s must be at most %d bytes", fe.Field(), utils.MaxPasswordBytes)
    }
    return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

// bindValid binds the request body into dst and validates it.  It writes
// the 400 response itself and reports whether the handler may continue.
func bindValid(c echo.Context, dst any) (bool, error) {
    if err := c.Bind(dst); err != nil {
        return false, c.JSON(http.StatusBadRequest, errorBody("invalid body"))
    }
    if err := c.Validate(dst); err != nil {
        return false, c.JSON(http.StatusBadRequest, errorBody(err.Error()))
    }
    return true, nil
}
