package kubeutil

import (
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// ConnectToK8s detects a *kubernetes.Clientset.
//
// It searches kubeconfig from, in increasing priority:
//
// - `~/.kube/config`
//
// - environment variable `KUBECONFIG`
//
// - the explicit kubeconfig argument (may be empty)
//
// When no usable file is found, it falls back to in-cluster config.
func ConnectToK8s(kubeconfig string) (*kubernetes.Clientset, error) {
	if kubeconfig == "" {
		if k := os.Getenv("KUBECONFIG"); k != "" {
			kubeconfig = k
		} else if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}

	if kubeconfig != "" {
		stat, err := os.Stat(kubeconfig)
		if os.IsNotExist(err) || (err == nil && stat.IsDir()) {
			kubeconfig = ""
		}
	}

	var config *rest.Config
	var err error
	if kubeconfig == "" {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, err
	}

	return kubernetes.NewForConfig(config)
}
