package model

const (
	ProviderPolar  = "polar"
	ProviderStripe = "stripe"
)
