package provisioning

import "go.uber.org/zap"

// ResolveSSHKey picks the fingerprint of the key to attach to a new droplet.
// Name wins over fingerprint when both are set. With an empty selector the
// first key in provider order is used.
func ResolveSSHKey(keys []SSHKey, sel KeySelector) (string, error) {
	key, err := SelectSSHKey(keys, sel)
	if err != nil {
		return "", err
	}
	return key.Fingerprint, nil
}

// SelectSSHKey is ResolveSSHKey returning the whole key record.
func SelectSSHKey(keys []SSHKey, sel KeySelector) (SSHKey, error) {
	if len(keys) == 0 {
		return SSHKey{}, &ConfigurationError{
			Reason: "no SSH keys registered; add one via the control panel or 'dropletup keys import'",
		}
	}

	switch {
	case sel.Name != "":
		for _, k := range keys {
			if k.Name == sel.Name {
				return k, nil
			}
		}
		return SSHKey{}, &NotFoundError{Kind: "ssh key", Field: "name", Value: sel.Name}

	case sel.Fingerprint != "":
		for _, k := range keys {
			if k.Fingerprint == sel.Fingerprint {
				return k, nil
			}
		}
		return SSHKey{}, &NotFoundError{Kind: "ssh key", Field: "fingerprint", Value: sel.Fingerprint}
	}

	return keys[0], nil
}

// resolveSSHKey selects the key for a run and reports a defaulted choice on
// the progress stream.
func (p *Provisioner) resolveSSHKey(keys []SSHKey, sel KeySelector) (string, error) {
	key, err := SelectSSHKey(keys, sel)
	if err != nil {
		return "", err
	}
	if sel == (KeySelector{}) {
		p.printf("No SSH key name or fingerprint provided. Using the first key found: %s (%s)", key.Name, key.Fingerprint)
		p.log.Info("using the first registered SSH key",
			zap.String("name", key.Name),
			zap.String("fingerprint", key.Fingerprint))
	}
	return key.Fingerprint, nil
}
