package handler

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/order-management/internal/order"
)

const (
	addDetailsAction = "Add Details"
	maxDetailRows    = 100
	orderDateLayout  = "2006-01-02 15:04"
)

// Upper bound of NUMERIC(12,2).
var maxPrice = decimal.New(1, 10)

type DetailForm struct {
	ID       int64  `form:"Id" validate:"-"`
	MenuName string `form:"MenuName" validate:"required,max=100"`
	Price    string `form:"Price" validate:"required,price"`
}

// OrderForm is the posted order form. Values stay strings until the form is
// valid so that a re-rendered form shows exactly what the user typed.
type OrderForm struct {
	ID           int64        `form:"Id" validate:"-"`
	OrderDate    string       `form:"OrderDate" validate:"-"`
	TableNumber  string       `form:"TableNumber" validate:"required,number,max=9"`
	Details      []DetailForm `form:"Details" validate:"dive"`
	Submit       string       `form:"submit" validate:"-"`
	DetailsCount int          `form:"detailsCount" validate:"-"`
}

func newFormDecoder() *form.Decoder {
	decoder := form.NewDecoder()
	decoder.SetMaxArraySize(maxDetailRows)
	return decoder
}

func newValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or a nil func.
	_ = validate.RegisterValidation("price", validatePrice)
	return validate
}

func validatePrice(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return !d.IsNegative() && d.Equal(d.Round(2)) && d.LessThan(maxPrice)
}

func newOrderForm() OrderForm {
	return OrderForm{
		Details:      []DetailForm{{}},
		DetailsCount: 1,
	}
}

func orderFormFrom(o *order.Order) OrderForm {
	f := OrderForm{
		ID:          o.ID,
		OrderDate:   o.OrderDate.Local().Format(orderDateLayout),
		TableNumber: strconv.Itoa(o.TableNumber),
		Details:     make([]DetailForm, 0, len(o.Details)+1),
	}
	for _, d := range o.Details {
		f.Details = append(f.Details, DetailForm{
			ID:       d.ID,
			MenuName: d.MenuName,
			Price:    d.Price.StringFixed(2),
		})
	}
	f.DetailsCount = len(f.Details)
	return f
}

// trimSpace strips the typed values once so that validation sees what is stored.
func (f *OrderForm) trimSpace() {
	f.TableNumber = strings.TrimSpace(f.TableNumber)
	for i := range f.Details {
		f.Details[i].MenuName = strings.TrimSpace(f.Details[i].MenuName)
		f.Details[i].Price = strings.TrimSpace(f.Details[i].Price)
	}
}

func (f *OrderForm) wantsNewRow() bool {
	return f.Submit == addDetailsAction
}

// addDetailRow pads the rows up to the count the page rendered and appends one
// blank row. It reports false when the form already holds maxDetailRows rows.
func (f *OrderForm) addDetailRow() bool {
	for len(f.Details) < f.DetailsCount && len(f.Details) < maxDetailRows {
		f.Details = append(f.Details, DetailForm{})
	}
	added := len(f.Details) < maxDetailRows
	if added {
		f.Details = append(f.Details, DetailForm{})
	}
	f.DetailsCount = len(f.Details)
	return added
}

// toOrder converts a validated form into a domain order.
func (f *OrderForm) toOrder() (*order.Order, error) {
	tableNumber, err := strconv.Atoi(f.TableNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid table number %q: %w", f.TableNumber, err)
	}

	o := &order.Order{
		ID:          f.ID,
		TableNumber: tableNumber,
		Details:     make([]order.Detail, 0, len(f.Details)),
	}
	for _, d := range f.Details {
		price, err := decimal.NewFromString(d.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", d.Price, err)
		}
		o.Details = append(o.Details, order.Detail{
			ID:       d.ID,
			MenuName: d.MenuName,
			Price:    price,
			OrderID:  f.ID,
		})
	}

	return o, nil
}

// formatValidationErrors maps form field names such as "Details[0].Price" to
// a message for that field.
func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, e := range errs {
		name := e.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}

		var msg string
		switch e.Tag() {
		case "required":
			msg = fmt.Sprintf("The %s field is required.", e.Field())
		case "number":
			msg = fmt.Sprintf("The %s field must be a whole number.", e.Field())
		case "max":
			msg = fmt.Sprintf("The %s field must be at most %s characters long.", e.Field(), e.Param())
		case "price":
			msg = fmt.Sprintf("The %s field must be a non-negative amount with at most two decimal places.", e.Field())
		default:
			msg = fmt.Sprintf("The %s field is invalid.", e.Field())
		}
		details[name] = msg
	}
	return details
}
