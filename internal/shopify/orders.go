package shopify

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/order-replacement/internal/model"
)

type money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

type moneyBag struct {
	PresentmentMoney money `json:"presentmentMoney"`
}

const orderQuery = `query order($id: ID!) {
  order(id: $id) {
    id
    name
    customer { email firstName lastName }
    lineItems(first: 250) {
      edges {
        node {
          id
          title
          product { handle }
          currentQuantity
          originalUnitPriceSet { presentmentMoney { amount currencyCode } }
          originalTotalSet { presentmentMoney { amount currencyCode } }
        }
      }
    }
  }
}`

type orderData struct {
	Order *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Customer *struct {
			Email     string `json:"email"`
			FirstName string `json:"firstName"`
			LastName  string `json:"lastName"`
		} `json:"customer"`
		LineItems struct {
			Edges []struct {
				Node struct {
					ID      string `json:"id"`
					Title   string `json:"title"`
					Product *struct {
						Handle string `json:"handle"`
					} `json:"product"`
					CurrentQuantity      int      `json:"currentQuantity"`
					OriginalUnitPriceSet moneyBag `json:"originalUnitPriceSet"`
					OriginalTotalSet     moneyBag `json:"originalTotalSet"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"lineItems"`
	} `json:"order"`
}

// LookupOrder возвращает заказ с позициями, ценами и контактами покупателя.
func (c *Client) LookupOrder(ctx context.Context, orderID string) (model.Order, error) {
	data, err := do[orderData](ctx, c, orderQuery, map[string]any{"id": orderID})
	if err != nil {
		return model.Order{}, err
	}
	if data.Order == nil {
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	o := model.Order{
		ID:   data.Order.ID,
		Name: data.Order.Name,
	}
	if data.Order.Customer != nil {
		o.Customer = model.Customer{
			FirstName: data.Order.Customer.FirstName,
			LastName:  data.Order.Customer.LastName,
			Email:     data.Order.Customer.Email,
		}
	}

	for _, edge := range data.Order.LineItems.Edges {
		n := edge.Node
		li := model.LineItem{
			ID:              n.ID,
			Title:           n.Title,
			CurrentQuantity: n.CurrentQuantity,
			UnitPrice:       n.OriginalUnitPriceSet.PresentmentMoney.Amount,
			TotalPrice:      n.OriginalTotalSet.PresentmentMoney.Amount,
			Currency:        n.OriginalTotalSet.PresentmentMoney.CurrencyCode,
		}
		if n.Product != nil {
			li.ProductHandle = n.Product.Handle
		}
		o.LineItems = append(o.LineItems, li)
	}

	return o, nil
}

const variantQuery = `query productVariants($id: ID!) {
  product(id: $id) {
    variants(first: 10) {
      edges { node { id availableForSale } }
    }
  }
}`

type variantData struct {
	Product *struct {
		Variants struct {
			Edges []struct {
				Node struct {
					ID               string `json:"id"`
					AvailableForSale bool   `json:"availableForSale"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"variants"`
	} `json:"product"`
}

// ResolveVariant возвращает первый доступный к продаже вариант товара.
func (c *Client) ResolveVariant(ctx context.Context, productID string) (string, error) {
	data, err := do[variantData](ctx, c, variantQuery, map[string]any{"id": ProductGID(productID)})
	if err != nil {
		return "", err
	}
	if data.Product == nil {
		return "", fmt.Errorf("%w: %s", ErrVariantNotFound, productID)
	}

	for _, edge := range data.Product.Variants.Edges {
		if edge.Node.AvailableForSale {
			return edge.Node.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrVariantNotFound, productID)
}

const beginEditMutation = `mutation orderEditBegin($id: ID!) {
  orderEditBegin(id: $id) {
    calculatedOrder {
      id
      lineItems(first: 250) {
        edges { node { id quantity } }
      }
    }
    userErrors { field message }
  }
}`

type beginEditData struct {
	OrderEditBegin struct {
		CalculatedOrder *struct {
			ID        string `json:"id"`
			LineItems struct {
				Edges []struct {
					Node struct {
						ID       string `json:"id"`
						Quantity int    `json:"quantity"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"lineItems"`
		} `json:"calculatedOrder"`
		UserErrors UserErrors `json:"userErrors"`
	} `json:"orderEditBegin"`
}

// BeginEdit открывает сессию редактирования заказа и возвращает его текущие позиции.
func (c *Client) BeginEdit(ctx context.Context, orderID string) (model.EditSession, error) {
	data, err := do[beginEditData](ctx, c, beginEditMutation, map[string]any{"id": orderID})
	if err != nil {
		return model.EditSession{}, err
	}
	if len(data.OrderEditBegin.UserErrors) > 0 {
		return model.EditSession{}, data.OrderEditBegin.UserErrors
	}
	if data.OrderEditBegin.CalculatedOrder == nil {
		return model.EditSession{}, fmt.Errorf("begin edit: no calculated order for %s", orderID)
	}

	co := data.OrderEditBegin.CalculatedOrder
	session := model.EditSession{ID: co.ID}
	for _, edge := range co.LineItems.Edges {
		session.LineItems = append(session.LineItems, model.EditLineItem{
			ID:       edge.Node.ID,
			Quantity: edge.Node.Quantity,
		})
	}

	return session, nil
}

const addCustomItemMutation = `mutation orderEditAddCustomItem($id: ID!, $title: String!, $quantity: Int!, $price: MoneyInput!) {
  orderEditAddCustomItem(id: $id, title: $title, quantity: $quantity, price: $price) {
    calculatedLineItem { id }
    userErrors { field message }
  }
}`

type addCustomItemData struct {
	OrderEditAddCustomItem struct {
		CalculatedLineItem *struct {
			ID string `json:"id"`
		} `json:"calculatedLineItem"`
		UserErrors UserErrors `json:"userErrors"`
	} `json:"orderEditAddCustomItem"`
}

// AddCustomItem добавляет в сессию редактирования товар вне каталога.
func (c *Client) AddCustomItem(ctx context.Context, editID, title string, quantity int, price decimal.Decimal, currency string) (string, error) {
	data, err := do[addCustomItemData](ctx, c, addCustomItemMutation, map[string]any{
		"id":       editID,
		"title":    title,
		"quantity": quantity,
		"price": money{
			Amount:       price,
			CurrencyCode: currency,
		},
	})
	if err != nil {
		return "", err
	}
	if len(data.OrderEditAddCustomItem.UserErrors) > 0 {
		return "", data.OrderEditAddCustomItem.UserErrors
	}
	if data.OrderEditAddCustomItem.CalculatedLineItem == nil {
		return "", fmt.Errorf("add custom item: empty response")
	}

	return data.OrderEditAddCustomItem.CalculatedLineItem.ID, nil
}

const addVariantMutation = `mutation orderEditAddVariant($id: ID!, $variantId: ID!, $quantity: Int!) {
  orderEditAddVariant(id: $id, variantId: $variantId, quantity: $quantity) {
    calculatedLineItem { id }
    userErrors { field message }
  }
}`

type addVariantData struct {
	OrderEditAddVariant struct {
		CalculatedLineItem *struct {
			ID string `json:"id"`
		} `json:"calculatedLineItem"`
		UserErrors UserErrors `json:"userErrors"`
	} `json:"orderEditAddVariant"`
}

// AddVariant добавляет в сессию редактирования вариант товара из каталога.
func (c *Client) AddVariant(ctx context.Context, editID, variantID string, quantity int) (string, error) {
	data, err := do[addVariantData](ctx, c, addVariantMutation, map[string]any{
		"id":        editID,
		"variantId": variantID,
		"quantity":  quantity,
	})
	if err != nil {
		return "", err
	}
	if len(data.OrderEditAddVariant.UserErrors) > 0 {
		return "", data.OrderEditAddVariant.UserErrors
	}
	if data.OrderEditAddVariant.CalculatedLineItem == nil {
		return "", fmt.Errorf("add variant: empty response")
	}

	return data.OrderEditAddVariant.CalculatedLineItem.ID, nil
}

const setQuantityMutation = `mutation orderEditSetQuantity($id: ID!, $lineItemId: ID!, $quantity: Int!) {
  orderEditSetQuantity(id: $id, lineItemId: $lineItemId, quantity: $quantity) {
    calculatedOrder { id }
    userErrors { field message }
  }
}`

type setQuantityData struct {
	OrderEditSetQuantity struct {
		UserErrors UserErrors `json:"userErrors"`
	} `json:"orderEditSetQuantity"`
}

// SetLineItemQuantity меняет количество позиции в сессии редактирования.
func (c *Client) SetLineItemQuantity(ctx context.Context, editID, lineItemID string, quantity int) error {
	data, err := do[setQuantityData](ctx, c, setQuantityMutation, map[string]any{
		"id":         editID,
		"lineItemId": lineItemID,
		"quantity":   quantity,
	})
	if err != nil {
		return err
	}
	if len(data.OrderEditSetQuantity.UserErrors) > 0 {
		return data.OrderEditSetQuantity.UserErrors
	}
	return nil
}

const commitEditMutation = `mutation orderEditCommit($id: ID!, $notifyCustomer: Boolean, $staffNote: String) {
  orderEditCommit(id: $id, notifyCustomer: $notifyCustomer, staffNote: $staffNote) {
    order { id }
    userErrors { field message }
  }
}`

type commitEditData struct {
	OrderEditCommit struct {
		Order *struct {
			ID string `json:"id"`
		} `json:"order"`
		UserErrors UserErrors `json:"userErrors"`
	} `json:"orderEditCommit"`
}

// CommitEdit применяет сессию редактирования к заказу.
func (c *Client) CommitEdit(ctx context.Context, editID string, notifyCustomer bool, note string) (string, error) {
	data, err := do[commitEditData](ctx, c, commitEditMutation, map[string]any{
		"id":             editID,
		"notifyCustomer": notifyCustomer,
		"staffNote":      note,
	})
	if err != nil {
		return "", err
	}
	if len(data.OrderEditCommit.UserErrors) > 0 {
		return "", data.OrderEditCommit.UserErrors
	}
	if data.OrderEditCommit.Order == nil {
		return "", fmt.Errorf("commit edit: empty response")
	}

	return data.OrderEditCommit.Order.ID, nil
}
