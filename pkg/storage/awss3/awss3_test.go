package awss3_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thannaske/s3report/pkg/models"
	"github.com/thannaske/s3report/pkg/storage/awss3"
)

type fakeAPI struct {
	bucketPages   [][]string
	bucketRegions map[string]string
	bucketsErr    error
	// echoToken returns the same continuation token on every page
	echoToken   bool
	bucketCalls int

	// pages of object sizes per bucket
	objectPages map[string][][]int64
	objectsErr  map[string]error
	objectCalls int
	// region each ListObjectsV2 call was sent to
	objectRegions []string

	putInput  *s3.PutObjectInput
	putRegion string
	putBody  []byte
	putErr   error
}

// regionOf applies optFns the way the client does and returns the region
func regionOf(optFns []func(*s3.Options)) string {
	o := s3.Options{Region: "us-east-1"}
	for _, fn := range optFns {
		fn(&o)
	}
	return o.Region
}

func (f *fakeAPI) ListBuckets(_ context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.bucketCalls++
	if f.bucketsErr != nil {
		return nil, f.bucketsErr
	}
	idx := 0
	if in.ContinuationToken != nil {
		idx = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}
	out := &s3.ListBucketsOutput{}
	for _, name := range f.bucketPages[idx] {
		b := types.Bucket{Name: aws.String(name)}
		if region, ok := f.bucketRegions[name]; ok {
			b.BucketRegion = aws.String(region)
		}
		out.Buckets = append(out.Buckets, b)
	}
	if f.echoToken {
		out.ContinuationToken = aws.String("1")
		return out, nil
	}
	if idx+1 < len(f.bucketPages) {
		out.ContinuationToken = aws.String(string(rune('0' + idx + 1)))
	}
	return out, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.objectCalls++
	f.objectRegions = append(f.objectRegions, regionOf(optFns))
	bucket := aws.ToString(in.Bucket)
	idx := 0
	if in.ContinuationToken != nil {
		idx = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}
	if err := f.objectsErr[bucket]; err != nil && idx > 0 {
		return nil, err
	}
	pages := f.objectPages[bucket]
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(pages) == 0 {
		return out, nil
	}
	for _, size := range pages[idx] {
		out.Contents = append(out.Contents, types.Object{Size: aws.Int64(size)})
	}
	if idx+1 < len(pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('0' + idx + 1)))
	}
	return out, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = in
	f.putRegion = regionOf(optFns)
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.putBody = body
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func TestListContainers(t *testing.T) {
	api := &fakeAPI{bucketPages: [][]string{{"a", "b"}, {"c"}}}
	s := awss3.New(api, "reports")

	got, err := s.ListContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Container{{Name: "a"}, {Name: "b"}, {Name: "c"}}, got)
}

func TestListContainers_RepeatedTokenStops(t *testing.T) {
	api := &fakeAPI{bucketPages: [][]string{{"a"}, {"b"}}, echoToken: true}

	got, err := awss3.New(api, "reports").ListContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Container{{Name: "a"}, {Name: "b"}}, got)
	assert.Equal(t, 2, api.bucketCalls)
}

func TestListObjects_UsesBucketRegion(t *testing.T) {
	api := &fakeAPI{
		bucketPages:   [][]string{{"local", "dublin"}},
		bucketRegions: map[string]string{"dublin": "eu-west-1"},
		objectPages: map[string][][]int64{
			"local":  {{1}},
			"dublin": {{2}, {3}},
		},
	}
	s := awss3.New(api, "reports")
	_, err := s.ListContainers(context.Background())
	require.NoError(t, err)

	_, err = s.ListObjects(context.Background(), "local")
	require.NoError(t, err)
	got, err := s.ListObjects(context.Background(), "dublin")
	require.NoError(t, err)

	assert.Equal(t, []models.ObjectEntry{{SizeBytes: 2}, {SizeBytes: 3}}, got)
	assert.Equal(t, []string{"us-east-1", "eu-west-1", "eu-west-1"}, api.objectRegions)
}

func TestPutObject_UsesReportBucketRegion(t *testing.T) {
	api := &fakeAPI{
		bucketPages:   [][]string{{"reports"}},
		bucketRegions: map[string]string{"reports": "eu-central-1"},
	}
	s := awss3.New(api, "reports")
	_, err := s.ListContainers(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.PutObject(context.Background(), "k", []byte("[]"), "application/json"))
	assert.Equal(t, "eu-central-1", api.putRegion)
}

func TestListContainers_Error(t *testing.T) {
	api := &fakeAPI{bucketsErr: errors.New("AccessDenied")}

	_, err := awss3.New(api, "reports").ListContainers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestListObjects_FollowsPages(t *testing.T) {
	api := &fakeAPI{objectPages: map[string][][]int64{
		"data": {{1, 2}, {3}, {4, 5}},
	}}
	s := awss3.New(api, "reports")

	got, err := s.ListObjects(context.Background(), "data")
	require.NoError(t, err)
	assert.Equal(t, []models.ObjectEntry{{SizeBytes: 1}, {SizeBytes: 2}, {SizeBytes: 3}, {SizeBytes: 4}, {SizeBytes: 5}}, got)
	assert.Equal(t, 3, api.objectCalls)
}

func TestListObjects_Empty(t *testing.T) {
	api := &fakeAPI{}

	got, err := awss3.New(api, "reports").ListObjects(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListObjects_PageErrorFailsBucket(t *testing.T) {
	api := &fakeAPI{
		objectPages: map[string][][]int64{"data": {{1}, {2}}},
		objectsErr:  map[string]error{"data": errors.New("InternalError")},
	}

	got, err := awss3.New(api, "reports").ListObjects(context.Background(), "data")
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "data")
}

func TestPutObject(t *testing.T) {
	api := &fakeAPI{}
	s := awss3.New(api, "reports")

	require.NoError(t, s.PutObject(context.Background(), "s3-usage-2024-03-01.json", []byte("[]"), "application/json"))
	assert.Equal(t, "reports", aws.ToString(api.putInput.Bucket))
	assert.Equal(t, "s3-usage-2024-03-01.json", aws.ToString(api.putInput.Key))
	assert.Equal(t, "application/json", aws.ToString(api.putInput.ContentType))
	assert.EqualValues(t, 2, aws.ToInt64(api.putInput.ContentLength))
	assert.Equal(t, "[]", string(api.putBody))
}

func TestPutObject_Error(t *testing.T) {
	api := &fakeAPI{putErr: errors.New("NoSuchBucket")}

	err := awss3.New(api, "reports").PutObject(context.Background(), "k", []byte("[]"), "application/json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports/k")
}
