package awss3

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"

	"github.com/thannaske/s3report/pkg/models"
)

func TestClientOptions_CustomEndpoint(t *testing.T) {
	var o s3.Options
	clientOptions(models.Config{S3Endpoint: "http://rgw:7480"})(&o)

	assert.Equal(t, "http://rgw:7480", aws.ToString(o.BaseEndpoint))
	assert.True(t, o.UsePathStyle)
	assert.Equal(t, aws.RequestChecksumCalculationWhenRequired, o.RequestChecksumCalculation)
	assert.Equal(t, aws.ResponseChecksumValidationWhenRequired, o.ResponseChecksumValidation)
}

func TestClientOptions_AWS(t *testing.T) {
	var o s3.Options
	clientOptions(models.Config{S3Region: "eu-west-1"})(&o)

	assert.Nil(t, o.BaseEndpoint)
	assert.False(t, o.UsePathStyle)
	assert.Equal(t, aws.RequestChecksumCalculationUnset, o.RequestChecksumCalculation)
}
