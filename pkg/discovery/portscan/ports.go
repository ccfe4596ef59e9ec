package portscan

// CommonPorts is the default probe set: the services that matter on almost
// every engagement, ordered ascending.
var CommonPorts = []int{
	21, 22, 23, 25, 53, 80, 110, 111, 135, 139, 143,
	443, 445, 465, 587, 993, 995, 1433, 1521, 2049,
	3000, 3306, 3389, 5000, 5432, 5900, 6379, 8000,
	8080, 8443, 8888, 9000, 9090, 9200, 9443, 10443, 27017,
}

// WebPorts is the subset that plausibly speaks HTTP(S); endpoints for the
// enrichment phase come from these.
var WebPorts = map[int]bool{
	80: true, 443: true, 3000: true, 5000: true, 8000: true,
	8080: true, 8443: true, 8888: true, 9000: true, 9090: true,
	9200: true, 9443: true, 10443: true,
}

// TLSPorts handshake TLS first; the banner probe skips the plaintext poke.
var TLSPorts = map[int]bool{
	443: true, 465: true, 993: true, 995: true, 8443: true, 9443: true, 10443: true,
}

var wellKnownServices = map[int]string{
	21:    "ftp",
	22:    "ssh",
	23:    "telnet",
	25:    "smtp",
	53:    "dns",
	80:    "http",
	110:   "pop3",
	111:   "rpcbind",
	135:   "msrpc",
	139:   "netbios-ssn",
	143:   "imap",
	443:   "https",
	445:   "smb",
	465:   "smtps",
	587:   "submission",
	993:   "imaps",
	995:   "pop3s",
	1433:  "mssql",
	1521:  "oracle",
	2049:  "nfs",
	3000:  "http-alt",
	3306:  "mysql",
	3389:  "rdp",
	5000:  "http-alt",
	5432:  "postgresql",
	5900:  "vnc",
	6379:  "redis",
	8000:  "http-alt",
	8080:  "http-proxy",
	8443:  "https-alt",
	8888:  "http-alt",
	9000:  "http-alt",
	9090:  "http-alt",
	9200:  "elasticsearch",
	9443:  "https-alt",
	10443: "https-alt",
	27017: "mongodb",
}

// GuessService names a port from the well-known table, empty if unknown.
func GuessService(port int) string {
	return wellKnownServices[port]
}

// FullRange returns every TCP port from 1 to 65535.
func FullRange() []int {
	ports := make([]int, 65535)
	for i := range ports {
		ports[i] = i + 1
	}
	return ports
}
