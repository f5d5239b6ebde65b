package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// AdminClaims はオペレーター用トークンのクレーム
type AdminClaims struct {
	Operator string `json:"operator"`
	jwt.StandardClaims
}
