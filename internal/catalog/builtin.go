package catalog

func builtinDescriptors() []Descriptor {
	auth := func(typ, name string) Descriptor {
		return Descriptor{Type: typ, DisplayName: name, Category: CategoryAuth}
	}
	secret := func(typ, name string) Descriptor {
		return Descriptor{Type: typ, DisplayName: name, Category: CategorySecret}
	}
	wif := func(d Descriptor) Descriptor {
		d.IsWIF = true
		return d
	}
	enterprise := func(d Descriptor) Descriptor {
		d.IsEnterpriseOnly = true
		return d
	}
	defaultMounted := func(d Descriptor) Descriptor {
		d.DefaultMounted = true
		return d
	}

	return []Descriptor{
		auth("alicloud", "AliCloud"),
		auth("approle", "AppRole"),
		auth("aws", "AWS"),
		auth("azure", "Azure"),
		auth("cert", "TLS Certificates"),
		auth("gcp", "Google Cloud"),
		auth("github", "GitHub"),
		auth("jwt", "JWT"),
		auth("kubernetes", "Kubernetes"),
		auth("ldap", "LDAP"),
		auth("oidc", "OIDC"),
		auth("okta", "Okta"),
		auth("radius", "RADIUS"),
		enterprise(auth("saml", "SAML")),
		defaultMounted(auth("token", "Token")),
		auth("userpass", "Username & Password"),

		secret("alicloud", "AliCloud"),
		wif(secret("aws", "AWS")),
		wif(secret("azure", "Azure")),
		secret("consul", "Consul"),
		defaultMounted(secret("cubbyhole", "Cubbyhole")),
		secret("database", "Databases"),
		wif(secret("gcp", "Google Cloud")),
		secret("gcpkms", "Google Cloud KMS"),
		enterprise(secret("keymgmt", "Key Management")),
		enterprise(secret("kmip", "KMIP")),
		secret("kubernetes", "Kubernetes"),
		secret("kv", "KV"),
		secret("ldap", "LDAP"),
		secret("nomad", "Nomad"),
		secret("pki", "PKI Certificates"),
		secret("rabbitmq", "RabbitMQ"),
		secret("ssh", "SSH"),
		secret("totp", "TOTP"),
		enterprise(secret("transform", "Transform")),
		secret("transit", "Transit"),
	}
}
