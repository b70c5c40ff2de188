package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

const (
	defaultRateLimit = 10.0
	defaultBurst     = 20
)

type (
	PermissionsConfig struct {
		Permissions []User `yaml:"permissions"`
	}

	// User maps an API key to the account submissions are attributed to. RateLimit is in requests per second.
	User struct {
		UserName  string  `yaml:"userName"`
		ApiKey    string  `yaml:"apiKey"`
		Account   string  `yaml:"account"`
		RateLimit float64 `yaml:"rateLimit"`
		Burst     int     `yaml:"burst"`
	}

	PermissionsMap map[string]*permissionEntry

	permissionEntry struct {
		userName string
		apiKey   string
		account  localCommon.AccountID
		limiter  *rate.Limiter
	}

	Permissions struct {
		lock     sync.Mutex
		permMap  PermissionsMap
		fileName string
	}
)

// NewPermissions loads the permissions file.
func NewPermissions(fileName string) (*Permissions, error) {
	permMap, err := parseConfigFile(fileName)
	if err != nil {
		return nil, err
	}
	return &Permissions{permMap: permMap, fileName: fileName}, nil
}

// NewPermissionsFromMap is used when the permissions do not come from a file.
func NewPermissionsFromMap(permMap PermissionsMap) *Permissions {
	return &Permissions{permMap: permMap}
}

// StartWatcher reloads the permissions file whenever it changes.
func (perms *Permissions) StartWatcher(ctx context.Context, logger *zap.Logger, errC chan error) error {
	logger = logger.With(zap.String("component", "perms"))
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create permissions file watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(perms.fileName)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch permissions file: %w", err)
	}

	localCommon.RunWithScissors(ctx, errC, "perm_file_watcher", func(ctx context.Context) error {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return fmt.Errorf("permissions watcher closed")
				}
				if filepath.Clean(ev.Name) != filepath.Clean(perms.fileName) || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				logger.Info("the permissions file has been updated", zap.String("fileName", ev.Name), zap.Stringer("op", ev.Op))
				perms.Reload(logger)
			case err, ok := <-watcher.Errors:
				if !ok {
					return fmt.Errorf("permissions watcher closed")
				}
				logger.Warn("permissions watcher error", zap.Error(err))
			}
		}
	})
	return nil
}

// Reload re-reads the permissions file. On failure the old permissions stay in effect.
func (perms *Permissions) Reload(logger *zap.Logger) {
	permMap, err := parseConfigFile(perms.fileName)
	if err != nil {
		logger.Error("failed to reload the permissions file, sticking with the old one", zap.String("fileName", perms.fileName), zap.Error(err))
		permissionFileReloadsFailure.Inc()
		return
	}

	logger.Info("successfully reloaded the permissions file, switching to it", zap.String("fileName", perms.fileName))
	perms.lock.Lock()
	perms.permMap = permMap
	perms.lock.Unlock()
	permissionFileReloadsSuccess.Inc()
}

// GetUserEntry returns the permissions entry for a given API key.
func (perms *Permissions) GetUserEntry(apiKey string) (*permissionEntry, bool) {
	perms.lock.Lock()
	defer perms.lock.Unlock()
	userEntry, exists := perms.permMap[strings.ToLower(apiKey)]
	return userEntry, exists
}

func parseConfigFile(fileName string) (PermissionsMap, error) {
	byteValue, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf(`failed to read permissions file "%s": %w`, fileName, err)
	}

	retVal, err := parseConfig(byteValue)
	if err != nil {
		return retVal, fmt.Errorf(`failed to parse permissions file "%s": %w`, fileName, err)
	}
	return retVal, nil
}

// parseConfig parses the permissions config from a buffer into a map keyed by API key.
func parseConfig(byteValue []byte) (PermissionsMap, error) {
	var config PermissionsConfig
	if err := yaml.Unmarshal(byteValue, &config); err != nil {
		return nil, fmt.Errorf(`failed to unmarshal yaml: %w`, err)
	}

	ret := make(PermissionsMap)
	userNames := map[string]struct{}{}
	for _, user := range config.Permissions {
		// Since we log user names in all our error messages, make sure they are unique.
		if _, exists := userNames[user.UserName]; exists {
			return nil, fmt.Errorf(`UserName "%s" is a duplicate`, user.UserName)
		}
		userNames[user.UserName] = struct{}{}

		if user.ApiKey == "" {
			return nil, fmt.Errorf(`UserName "%s" has no API key`, user.UserName)
		}
		apiKey := strings.ToLower(user.ApiKey)
		if _, exists := ret[apiKey]; exists {
			return nil, fmt.Errorf(`API key "%s" is a duplicate`, apiKey)
		}

		account, err := localCommon.StringToAccountID(user.Account)
		if err != nil {
			return nil, fmt.Errorf(`invalid account for user "%s": %w`, user.UserName, err)
		}

		limit, burst := user.RateLimit, user.Burst
		if limit <= 0 {
			limit = defaultRateLimit
		}
		if burst <= 0 {
			burst = defaultBurst
		}

		ret[apiKey] = &permissionEntry{
			userName: user.UserName,
			apiKey:   apiKey,
			account:  account,
			limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		}
	}

	return ret, nil
}
