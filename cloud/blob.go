/*
Copyright © 2020 the icepipe authors.
This file is part of icepipe.

icepipe is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

icepipe is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with icepipe.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
)

// readBlob reads the given blob from the given bucket.
func readBlob(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	var b bytes.Buffer
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("reading blob key %s: %v", key, err)
	}
	defer r.Close()
	_, err = io.Copy(&b, r)
	if err != nil {
		return nil, fmt.Errorf("reading blob key %s: %v", key, err)
	}
	return b.Bytes(), nil
}

// writeBlob writes the given data to the given bucket.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key string, data []byte) error {
	b := bytes.NewBuffer(data)
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("icepipe/cloud: creating writer for blob %s: %v", key, err)
	}
	_, err = io.Copy(w, b)
	if err != nil {
		return fmt.Errorf("icepipe/cloud: copying blob %s: %v", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("icepipe/cloud: writing blob %s: %v", key, err)
	}
	return nil
}

// deleteBlobDir deletes all blobs in the the specified directory
// of the specified bucket
func deleteBlobDir(ctx context.Context, bucketName, user, jobName string) error {
	bucket, err := OpenBucket(ctx, bucketName)
	if err != nil {
		return err
	}

	url, err := url.Parse(bucketName)
	if err != nil {
		return fmt.Errorf("cloud: parsing bucket name: %v", err)
	}

	prefix := strings.TrimLeft(fmt.Sprintf("%s/%s/%s/", url.Path, user, jobName), "/")
	iter := bucket.List(&blob.ListOptions{
		Prefix:    prefix,
		Delimiter: "/",
	})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("cloud: listing blobs to delete: %v", err)
		}
		if err = bucket.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("cloud: deleting blob %s: %v", obj.Key, err)
		}
	}
	return nil
}

// Output returns the output of the specified job.
func (c *Client) Output(ctx context.Context, job *JobName) (*JobOutput, error) {
	bucket, err := OpenBucket(ctx, c.bucketName)
	if err != nil {
		return nil, err
	}
	o := &JobOutput{
		Files: make(map[string][]byte),
	}
	k8sJob, err := c.getk8sJob(ctx, job)
	if err != nil {
		return nil, err
	}
	addrs, err := c.jobOutputAddresses(ctx, job.Name, k8sJob.Spec.Template.Spec.Containers[0].Command)
	if err != nil {
		return nil, err
	}
	for _, addr := range addrs {
		url, err := url.Parse(addr)
		if err != nil {
			return nil, err
		}
		o.Files[filepath.Base(addr)], err = readBlob(ctx, bucket, strings.TrimLeft(url.Path, "/"))
		if err != nil {
			return nil, err
		}
	}
	return o, nil
}
