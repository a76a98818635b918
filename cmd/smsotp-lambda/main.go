// Package main is the entry point for the SMS OTP Lambda.
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	smsotplambda "github.com/byteness/smsotp/lambda"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	router := smsotplambda.NewRouter(smsotplambda.NewHandler())
	lambda.Start(router.Route)
}
