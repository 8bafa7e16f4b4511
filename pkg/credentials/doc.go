/*
Package credentials keeps AI provider secrets sealed at rest.

A Sealer encrypts values with AES-256-GCM. New values are always sealed with
the active key; opening tries the active key first and then every fallback
key, so keys can be rotated without re-sealing stored secrets up front.

A Vault maps (bot, provider) references to provider records whose API key is
held sealed and only opened inside Resolve. It implements
ports.ProviderResolver.
*/
package credentials
