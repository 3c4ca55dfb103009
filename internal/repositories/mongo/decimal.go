package mongo

import (
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

// Decimal amounts are stored as strings to keep full precision; the driver's
// native float64 round-trip is not acceptable for BTC quantities.

func parseDecimalField(doc bson.M, fieldName string) decimal.Decimal {
	if v, ok := doc[fieldName]; ok {
		if str, ok := v.(string); ok {
			if d, err := decimal.NewFromString(str); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

func parseDecimalPtrField(doc bson.M, fieldName string) *decimal.Decimal {
	if v, ok := doc[fieldName]; ok {
		if str, ok := v.(string); ok {
			if d, err := decimal.NewFromString(str); err == nil {
				return &d
			}
		}
	}
	return nil
}

func stringField(doc bson.M, fieldName string) string {
	if v, ok := doc[fieldName]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

func boolField(doc bson.M, fieldName string) bool {
	if v, ok := doc[fieldName]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
