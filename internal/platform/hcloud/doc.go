// Package hcloud looks up Hetzner Cloud servers that back plan nodes.
//
// A node name is resolved as a server name. Lookups retry while the API
// reports the resource as locked, conflicting or rate limited; any other API
// error ends the lookup immediately.
//
// Example:
//
//	client := hcloud.NewClient(os.Getenv("HCLOUD_TOKEN"))
//	srv, err := client.GetServer(ctx, "hv1")
//	if errors.Is(err, hcloud.ErrServerNotFound) {
//	    // node has no backing server
//	}
package hcloud
