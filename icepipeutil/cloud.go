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

package icepipeutil

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/spatialmodel/icepipe"
	"github.com/spatialmodel/icepipe/cloud"
)

// NewCloudClient creates a Kubernetes client for distributed processing
// based on the current configuration. If the kubeconfig option is empty,
// in-cluster configuration is used.
func NewCloudClient() (*cloud.Client, error) {
	var restConfig *rest.Config
	var err error
	if kc := Cfg.GetString("kubeconfig"); kc != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", os.ExpandEnv(kc))
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	k, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	client, err := cloud.NewClient(k, Root, Cfg, Cfg.GetString("bucket"), InputFileArgs(), OutputFileArgs())
	if err != nil {
		return nil, err
	}
	if image := Cfg.GetString("image"); image != "" {
		client.Image = image
	}
	return client, nil
}

// cloudContext returns a context holding the name of the user that
// distributed jobs belong to.
func cloudContext() context.Context {
	user := os.Getenv("USER")
	if user == "" {
		user = "default"
	}
	return context.WithValue(context.Background(), "user", user)
}

// CloudJobSpec creates a job specification for the given job name,
// icepipe subcommands, and memory requirement from the current
// configuration.
func CloudJobSpec(name string, cmdArgs []string, memoryGB int32) (*cloud.JobSpec, error) {
	if err := setConfig(); err != nil {
		return nil, err
	}
	return cloud.NewJobSpec(Root, Cfg, icepipe.Version, name, cmdArgs, InputFileArgs(), memoryGB)
}

// CloudJobStart starts a new distributed job based on the current
// configuration, retrying with exponential backoff on transient errors.
func CloudJobStart(ctx context.Context, c *cloud.Client) error {
	job, err := CloudJobSpec(
		Cfg.GetString("job_name"),
		Cfg.GetStringSlice("cmds"),
		int32(Cfg.GetInt("memory_gb")),
	)
	if err != nil {
		return err
	}
	return backoff.RetryNotify(
		func() error {
			_, err := c.RunJob(ctx, job)
			return err
		},
		backoff.NewExponentialBackOff(),
		func(err error, d time.Duration) {
			log.Printf("%v: retrying in %v", err, d)
		},
	)
}

// CloudJobStatus checks the status of a distributed job
// based on the current configuration.
func CloudJobStatus(ctx context.Context, c *cloud.Client) (*cloud.JobStatus, error) {
	return c.Status(ctx, &cloud.JobName{
		Version: icepipe.Version,
		Name:    Cfg.GetString("job_name"),
	})
}

// CloudJobOutput retrieves and saves the output of a distributed job
// based on the current configuration. The files will be saved
// in `current_dir/job_name`, where current_dir is the directory
// the command is run in.
func CloudJobOutput(ctx context.Context, c *cloud.Client) error {
	name := Cfg.GetString("job_name")
	output, err := c.Output(ctx, &cloud.JobName{
		Version: icepipe.Version,
		Name:    name,
	})
	if err != nil {
		return err
	}
	os.Mkdir(name, os.ModePerm)
	for fname, data := range output.Files {
		w, err := os.Create(filepath.Join(name, fname))
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	}
	return nil
}

// CloudJobDelete deletes the specified distributed job.
func CloudJobDelete(ctx context.Context, name string, c *cloud.Client) error {
	_, err := c.Delete(ctx, &cloud.JobName{
		Version: icepipe.Version,
		Name:    name,
	})
	return err
}
