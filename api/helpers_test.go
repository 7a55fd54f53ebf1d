package api

import "github.com/shopspring/decimal"

func pts(s string) decimal.Decimal { return decimal.RequireFromString(s) }
